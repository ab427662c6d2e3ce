package routes

import "net/http"

// docsHTML is the usage page served to keyless browser visits.
const docsHTML = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
<meta charset="utf-8">
<title>PT-Gen</title>
<style>
body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
code, pre { background: #f4f4f4; padding: .1rem .3rem; border-radius: 3px; }
pre { padding: .6rem; overflow-x: auto; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: .3rem .6rem; text-align: left; }
</style>
</head>
<body>
<h1>PT-Gen</h1>
<p>媒体信息聚合网关。按资源链接或站点 id 抓取豆瓣、IMDb、TMDB、Bangumi、Steam、IGDB
的条目信息，返回规范化 JSON 与可直接粘贴的简介文本。</p>
<p>Media metadata gateway. Resolves a resource link or a (source, id) pair
against the supported upstreams and returns normalized JSON plus a rendered
description.</p>

<h2>请求 / Requests</h2>
<pre>GET /?url=https://movie.douban.com/subject/1292052/
GET /?source=douban&amp;sid=1292052
GET /?source=tmdb&amp;sid=603&amp;type=movie
GET /?query=your+keywords
POST / {"source":"imdb","sid":"tt0111161"}</pre>

<h2>参数 / Parameters</h2>
<table>
<tr><th>name</th><th>meaning</th></tr>
<tr><td><code>url</code></td><td>资源链接，优先级最高 / resource link, highest priority</td></tr>
<tr><td><code>source</code></td><td>douban, imdb, tmdb, bangumi, steam, igdb</td></tr>
<tr><td><code>sid</code></td><td>站点内 id / source-specific id</td></tr>
<tr><td><code>query</code></td><td>搜索关键词 / free-text search; CJK 自动路由豆瓣</td></tr>
<tr><td><code>type</code></td><td>TMDB 必填: movie 或 tv</td></tr>
<tr><td><code>key</code></td><td>API 密钥（若部署启用）/ deployment API key</td></tr>
</table>

<h2>响应 / Responses</h2>
<p>成功时 <code>success: true</code>，附带规范化字段、<code>format</code> 简介文本与
<code>generate_at</code> 时间戳；失败时 <code>success: false</code> 与 <code>error</code> 信息。</p>
</body>
</html>
`

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(docsHTML))
}

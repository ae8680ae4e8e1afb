package web

const layoutHTML = `{{define "layout"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} · Clawtographer</title>
<style>
body{font-family:system-ui,sans-serif;max-width:72rem;margin:0 auto;padding:1rem 2rem;color:#222}
nav a{margin-right:1rem}
table{border-collapse:collapse;width:100%}
th,td{border-bottom:1px solid #ddd;padding:.35rem .5rem;text-align:left;vertical-align:top}
code,pre{background:#f5f5f5}
pre{padding:.75rem;overflow-x:auto}
.status-failed,.status-cancelled{color:#b00020}
.status-partial{color:#b26a00}
.muted{color:#777}
</style>
</head>
<body>
<nav><a href="/runs"{{if eq .Nav "runs"}} aria-current="page"{{end}}>Runs</a><a href="/entries"{{if eq .Nav "entries"}} aria-current="page"{{end}}>Cache</a></nav>
<main>{{template "content" .}}</main>
<footer class="muted">clawtographer {{.Version}}</footer>
</body>
</html>{{end}}`

const runsHTML = `{{define "content"}}
<h1>Runs</h1>
{{if .Items}}
<table>
<thead><tr><th>Run</th><th>Started</th><th>Root</th><th>Status</th><th>Chunks</th><th>Cached</th><th>Analyzed</th><th>Failed</th><th>Model</th></tr></thead>
<tbody>
{{range .Items}}<tr>
<td><a href="/runs/{{.ID}}"><code>{{.ID}}</code></a></td>
<td title="{{formatTime .StartedAt}}">{{ago .StartedAt}}</td>
<td><code>{{.Root}}</code></td>
<td class="status-{{.Status}}">{{.Status}}</td>
<td>{{comma .ChunkCount}}</td><td>{{comma .Cached}}</td><td>{{comma .Analyzed}}</td><td>{{comma .Failed}}</td>
<td>{{.Model}}</td>
</tr>{{end}}
</tbody>
</table>
{{template "pager" .Pager}}
{{else}}
<p class="muted">No runs recorded yet.</p>
{{end}}
{{end}}`

const runHTML = `{{define "content"}}
{{with .Run}}
<h1>Run <code>{{.ID}}</code></h1>
<table>
<tr><th>Status</th><td class="status-{{.Status}}">{{.Status}}</td></tr>
<tr><th>Root</th><td><code>{{.Root}}</code></td></tr>
<tr><th>Output</th><td><code>{{.OutputPath}}</code>{{if $.HasMap}} · <a href="/runs/{{.ID}}/map">view map</a>{{end}}</td></tr>
<tr><th>Model</th><td>{{if .Model}}{{.Model}} ({{.Provider}}){{else}}<span class="muted">none</span>{{end}}</td></tr>
<tr><th>Analysis</th><td>{{.Mode}}</td></tr>
<tr><th>Started</th><td>{{formatTime .StartedAt}}</td></tr>
<tr><th>Finished</th><td>{{with .FinishedAt}}{{formatTime .}}{{else}}<span class="muted">not finished</span>{{end}}</td></tr>
{{if .Error}}<tr><th>Error</th><td class="status-failed">{{.Error}}</td></tr>{{end}}
</table>
{{end}}
<h2>Chunks</h2>
<table>
<thead><tr><th>#</th><th>Identity</th><th>Files</th><th>Tokens</th><th>Source</th><th>Status</th></tr></thead>
<tbody>
{{range .Chunks}}<tr>
<td>{{add .Index 1}}</td>
<td><a href="/entries/{{.Identity}}"><code>{{short .Identity}}</code></a></td>
<td>{{comma .FileCount}}</td>
<td>{{comma .Tokens}}</td>
<td>{{if .FromCache}}cache{{else}}model{{end}}</td>
<td class="status-{{.Status}}">{{.Status}}</td>
</tr>{{end}}
</tbody>
</table>
{{end}}`

const mapHTML = `{{define "content"}}
<p class="muted">Run <a href="/runs/{{.RunID}}"><code>{{.RunID}}</code></a> · <code>{{.Path}}</code></p>
<article>{{.RenderedHTML}}</article>
{{end}}`

const entriesHTML = `{{define "content"}}
<h1>Cache</h1>
<p>
<a href="/entries">all</a> ·
<a href="/entries?status=complete">complete</a> ·
<a href="/entries?status=failed">failed</a> ·
<a href="/entries?status=pending">pending</a>
</p>
{{if .Items}}
<table>
<thead><tr><th>Identity</th><th>Status</th><th>Files</th><th>Tokens</th><th>Attempts</th><th>Model</th><th>Updated</th></tr></thead>
<tbody>
{{range .Items}}<tr>
<td><a href="/entries/{{.Identity}}"><code>{{short .Identity}}</code></a></td>
<td class="status-{{.Status}}">{{.Status}}{{if .ErrorCode}} <code>{{.ErrorCode}}</code>{{end}}</td>
<td>{{comma .FileCount}}</td>
<td>{{comma .TokensEstimate}}</td>
<td>{{.Attempts}}</td>
<td>{{.Model}}</td>
<td title="{{formatTime .UpdatedAt}}">{{ago .UpdatedAt}}</td>
</tr>{{end}}
</tbody>
</table>
{{template "pager" .Pager}}
{{else}}
<p class="muted">No cache entries{{if .Status}} with status {{.Status}}{{end}}.</p>
{{end}}
{{end}}`

const entryHTML = `{{define "content"}}
{{with .Entry}}
<h1>Chunk <code>{{short .Identity}}</code></h1>
<table>
<tr><th>Identity</th><td><code>{{.Identity}}</code></td></tr>
<tr><th>Status</th><td class="status-{{.Status}}">{{.Status}}</td></tr>
<tr><th>Tokens</th><td>{{comma .TokensEstimate}}</td></tr>
<tr><th>Attempts</th><td>{{.Attempts}}</td></tr>
{{if .Model}}<tr><th>Model</th><td>{{.Model}}</td></tr>{{end}}
<tr><th>Updated</th><td>{{formatTime .UpdatedAt}}</td></tr>
{{if .ErrorCode}}<tr><th>Error</th><td class="status-failed"><code>{{.ErrorCode}}</code> {{.ErrorMessage}}</td></tr>{{end}}
</table>
<h2>Files</h2>
<ul>{{range .Files}}<li><code>{{.}}</code></li>{{end}}</ul>
{{end}}
{{if .RenderedHTML}}<h2>Analysis</h2>
<article>{{.RenderedHTML}}</article>{{end}}
{{end}}`

const errorHTML = `{{define "content"}}
<h1>Error {{.StatusCode}}</h1>
<p>{{.Message}}</p>
{{end}}`

const pagerHTML = `{{define "pager"}}{{if or .Prev .Next}}
<p>{{if .Prev}}<a href="{{.Prev}}">← newer</a>{{end}} {{if .Next}}<a href="{{.Next}}">older →</a>{{end}}
<span class="muted">{{comma .Total}} total</span></p>
{{end}}{{end}}`

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

const templates = `
{{define "messages"}}{{range .}}<div class="message-bubble{{if .Welcome}} message-welcome{{end}}" data-index="{{.Index}}" data-role="{{.Role}}">
<div class="message-avatar {{.Class}}"></div>
<div class="message-content-container">
<p class="message-sender">{{.Sender}}</p>
<div class="message-text {{.Class}}">{{.HTML}}</div>
{{if .Time}}<span class="message-time">{{.Time}}</span>{{end}}
</div>
</div>
{{end}}{{end}}

{{define "document"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;max-width:48rem;margin:2rem auto;padding:0 1rem;color:#1f2937}
.meta{color:#6b7280;font-size:.875rem}
.message-bubble{margin:1rem 0;padding:.75rem 1rem;border-radius:.75rem;background:#f3f4f6}
.message-bubble[data-role="user"]{background:#e0f2fe}
.message-sender{font-weight:600;margin:0 0 .25rem}
.message-text.user{white-space:pre-wrap}
.message-time{color:#9ca3af;font-size:.75rem}
pre{overflow-x:auto;padding:.75rem;border-radius:.5rem}
.memory{border-top:1px solid #e5e7eb;margin-top:2rem}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">{{if .Exported}}Exported {{.Exported}}{{end}}{{if .Model}} · Model {{.Model}}{{end}}</p>
<main id="chat-container">
{{template "messages" .Messages}}
</main>
{{if .Memory}}<section class="memory">
<h2>Memory</h2>
{{.Memory}}
</section>{{end}}
</body>
</html>
{{end}}
`

package tickets

import "html/template"

var transcriptTmpl = template.Must(template.New("transcript").Parse(transcriptHTML))

const transcriptHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Transcript of {{.Info.ChannelName}}</title>
<style>
body { margin: 0; background: #36393f; color: #dcddde; font-family: "Helvetica Neue", Helvetica, Arial, sans-serif; display: flex; }
.sidebar { width: 240px; min-height: 100vh; background: #2f3136; padding: 20px; flex-shrink: 0; }
.sidebar h1 { font-size: 16px; color: #fff; word-break: break-all; }
.sidebar dt { font-size: 11px; text-transform: uppercase; color: #8e9297; margin-top: 14px; }
.sidebar dd { margin: 2px 0 0 0; font-size: 14px; color: #dcddde; }
.log { flex-grow: 1; padding: 20px 30px; }
.message { display: flex; margin-top: 16px; }
.message.compact { margin-top: 2px; }
.avatar { width: 40px; height: 40px; border-radius: 50%; margin-right: 16px; flex-shrink: 0; }
.avatar-spacer { width: 56px; flex-shrink: 0; }
.author { font-size: 15px; font-weight: 500; color: #fff; }
.timestamp { font-size: 11px; color: #72767d; margin-left: 8px; }
.content { font-size: 15px; line-height: 1.35; white-space: pre-wrap; word-break: break-word; }
.attachment img { max-width: 400px; max-height: 300px; border-radius: 4px; margin-top: 6px; display: block; }
.attachment a { color: #00aff4; font-size: 14px; }
.attachment-failed { color: #f04747; font-size: 13px; }
</style>
</head>
<body>
<aside class="sidebar">
<h1>#{{.Info.ChannelName}}</h1>
<dl>
<dt>User</dt><dd>{{.Info.OwnerName}}</dd>
<dt>Created</dt><dd>{{.CreatedAt}}</dd>
<dt>Closed</dt><dd>{{.ClosedAt}}</dd>
<dt>Closed by</dt><dd>{{.Info.ClosedByName}}</dd>
<dt>Claimed by</dt><dd>{{.Info.ClaimedByName}}</dd>
</dl>
</aside>
<main class="log">
{{range .Messages}}
<div class="message{{if .Compact}} compact{{end}}">
{{if .Compact}}<div class="avatar-spacer"></div>{{else}}<img class="avatar" src="{{.AvatarURL}}" alt="">{{end}}
<div>
{{if not .Compact}}<div><span class="author">{{.AuthorName}}</span><span class="timestamp">{{.Timestamp}}</span></div>{{end}}
{{if .Content}}<div class="content">{{.Content}}</div>{{end}}
{{range .Attachments}}
<div class="attachment">
{{if .Failed}}<span class="attachment-failed">Failed to load image: {{.Name}}</span>
{{else if .IsImage}}<img src="{{.DataURI}}" alt="{{.Name}}">
{{else}}<a href="{{.URL}}">{{.Name}}</a> ({{.SizeKiB}} KiB)
{{end}}
</div>
{{end}}
</div>
</div>
{{end}}
</main>
</body>
</html>
`

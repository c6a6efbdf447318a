package server

import "net/http"

// handleHome serves the single-room chat and file-sharing page. Anything
// other than the root path falls through to 404 so mistyped routes do not
// render the page.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(chatPage))
}

const chatPage = `<!DOCTYPE html>
<html>
<head>
    <title>lanshare</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; max-width: 700px; }
        #messages {
            border: 1px solid #ccc;
            height: 320px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        #typing { color: gray; font-style: italic; min-height: 1.2em; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .file { color: #555; }
        .file a { color: #007cba; }
    </style>
</head>
<body>
    <h1>lanshare</h1>

    <div id="messages"></div>
    <div id="typing"></div>

    <div>
        <input type="text" id="nameInput" placeholder="Your name" size="12">
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>

    <div style="margin-top: 10px;">
        <input type="file" id="fileInput">
        <button onclick="uploadFile()">Share file</button>
    </div>

    <script>
        const messagesDiv = document.getElementById('messages');
        const typingDiv = document.getElementById('typing');
        const messageInput = document.getElementById('messageInput');
        const nameInput = document.getElementById('nameInput');

        const ws = new WebSocket('ws://' + location.host + '/ws');
        let typingTimer = null;

        function addLine(html) {
            const el = document.createElement('div');
            el.innerHTML = html;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        ws.onmessage = function(e) {
            // Frames may batch several newline-separated envelopes.
            e.data.split('\n').forEach(function(line) {
                if (!line) return;
                const env = JSON.parse(line);
                if (env.event === 'chat-message') {
                    const msg = env.data || {};
                    addLine('<strong>' + (msg.author || 'anonymous') + ':</strong> ' + msg.text);
                } else if (env.event === 'file-shared') {
                    const f = env.data;
                    addLine('<span class="file">shared <a href="' + f.path + '">' + f.filename +
                        '</a> (' + f.size + ' bytes)</span>');
                } else if (env.event === 'typing') {
                    typingDiv.textContent = env.data + ' is typing...';
                } else if (env.event === 'stop-typing') {
                    typingDiv.textContent = '';
                }
            });
        };

        function send(event, data) {
            if (ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({event: event, data: data}));
            }
        }

        function sendMessage() {
            const text = messageInput.value.trim();
            if (!text) return;
            send('chat-message', {author: nameInput.value || 'anonymous', text: text});
            send('stop-typing', nameInput.value || 'anonymous');
            messageInput.value = '';
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') { sendMessage(); return; }
            send('typing', nameInput.value || 'anonymous');
            clearTimeout(typingTimer);
            typingTimer = setTimeout(function() {
                send('stop-typing', nameInput.value || 'anonymous');
            }, 2000);
        });

        function uploadFile() {
            const input = document.getElementById('fileInput');
            if (!input.files.length) return;
            const form = new FormData();
            form.append('file', input.files[0]);
            fetch('/upload', {method: 'POST', body: form})
                .then(function(res) { return res.json(); })
                .then(function(body) { addLine('<em>' + body.message + '</em>'); })
                .catch(function(err) { addLine('<em>upload failed: ' + err + '</em>'); });
        }
    </script>
</body>
</html>`

package output

import "net/http"

// ViewerHandler serves a page showing the stream with camera controls and
// a live status line
func ViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(viewerHTML))
	}
}

const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>CloakStreamer</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }
        body {
            background: #000;
            color: #ccc;
            font-family: system-ui, -apple-system, sans-serif;
            display: flex;
            flex-direction: column;
            align-items: center;
            min-height: 100vh;
        }
        img {
            width: 100vw;
            height: calc(100vh - 64px);
            object-fit: contain;
            display: block;
            background: #000;
        }
        .controls {
            display: flex;
            gap: 8px;
            align-items: center;
            height: 64px;
        }
        button {
            padding: 8px 14px;
            border: none;
            border-radius: 20px;
            background: rgba(70, 130, 180, 0.9);
            color: #fff;
            font-size: 13px;
            cursor: pointer;
        }
        button:hover {
            background: rgba(100, 149, 237, 0.95);
        }
        button:disabled {
            background: rgba(60, 60, 60, 0.9);
            color: #777;
            cursor: default;
        }
        #stop {
            background: rgba(220, 80, 80, 0.9);
        }
        #status {
            margin-left: 16px;
            font-size: 13px;
            min-width: 280px;
        }
    </style>
</head>
<body>
    <img src="/video_feed" alt="CloakStreamer Live Stream">
    <div class="controls">
        <button id="start">Start Camera</button>
        <button id="capture" disabled>Capture Background</button>
        <button id="stop">Stop Camera</button>
        <span id="status">connecting...</span>
    </div>
    <script>
        const statusEl = document.getElementById('status');
        const captureBtn = document.getElementById('capture');

        function post(path) {
            statusEl.textContent = path.replace('/', '') + '...';
            fetch(path, { method: 'POST' })
                .then(r => r.json())
                .then(body => { statusEl.textContent = body.message; })
                .catch(err => { statusEl.textContent = 'request failed: ' + err; });
        }

        document.getElementById('start').onclick = () => post('/start_camera');
        document.getElementById('stop').onclick = () => post('/stop_camera');
        captureBtn.onclick = () => post('/capture_background');

        function render(st) {
            captureBtn.disabled = !st.can_capture;
            let line = st.state;
            if (st.source) line += ' (' + st.source + ')';
            if (st.background_set) line += ', background set';
            if (st.last_error) line += ', last error: ' + st.last_error;
            statusEl.textContent = line;
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(proto + location.host + '/api/session/events');
            ws.onmessage = e => render(JSON.parse(e.data));
            ws.onclose = () => setTimeout(connect, 2000);
        }
        connect();
    </script>
</body>
</html>`

package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/valve-actuator/internal/actuator"
	"github.com/sweeney/valve-actuator/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"positionClass": func(p actuator.Position) string {
		switch p {
		case actuator.Open:
			return "on"
		case actuator.Shut:
			return "off"
		case actuator.Invalid:
			return "fault"
		default:
			return "unknown"
		}
	},
	"model": status.Model,
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Valve Actuators</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.fault { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Valve Actuators{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Actuators</h2>
<table>
<tr><th>Name</th><td>Position</td><td>Target</td><td>Motor</td></tr>
{{range .Actuators}}<tr><th>{{.Name}} ({{model .}})</th><td id="pos-{{.Name}}" class="{{positionClass .Current}}">{{.Current}}</td><td>{{.Target}}</td><td>{{if .Moving}}running{{else}}idle{{end}}</td></tr>
{{else}}<tr><th>none</th><td colspan="3">no actuators configured</td></tr>
{{end}}</table>

<h2>Activity</h2>
<table>
<tr><th>Name</th><td>Commands</td><td>Settled</td><td>Timed out</td></tr>
{{range .Actuators}}<tr><th>{{.Name}}</th><td>{{.Counts.Commands}}</td><td>{{.Counts.Settles}}</td><td>{{.Counts.Timeouts}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Base topic</th><td>{{.Config.BaseTopic}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>GPIO</th><td>{{.Config.Backend}}</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Max switch</th><td>{{.Config.MaxSwitchMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var base = "{{.Config.BaseTopic}}";
  var dot = document.getElementById("live-dot");

  function setPosition(name, msg) {
    var el = document.getElementById("pos-" + name);
    if (!el) return;
    var text, cls;
    if (msg.state === "ON") { text = "OPEN"; cls = "on"; }
    else if (msg.state === "OFF") { text = "SHUT"; cls = "off"; }
    else if (msg.open && msg.shut) { text = "INVALID"; cls = "fault"; }
    else { text = "TRANSIENT"; cls = "unknown"; }
    el.textContent = text;
    el.className = cls;
  }

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(base + "/+/state");
  });

  client.on("reconnect", function() {
    setDot("pending", "reconnecting");
  });

  client.on("offline", function() {
    setDot("err", "offline");
  });

  client.on("error", function() {
    setDot("err", "error");
  });

  client.on("message", function(t, payload) {
    var parts = t.split("/");
    if (parts.length < 2) return;
    try {
      setPosition(parts[parts.length - 2], JSON.parse(payload.toString()));
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}

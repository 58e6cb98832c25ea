package main

var page = `<html>
<head>
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{if .Name}}{{.Name}} {{end}}Spa</title>
  <style>
  body {
    background-color: black;
    color: white;
    font-family: sans-serif;
    text-align: center;
  }
  #display {
    margin: 30px auto;
    width: 260px;
    height: 260px;
    border-radius: 50%;
    border: 8px solid #444;
    display: flex;
    flex-direction: column;
    justify-content: center;
  }
  #display.heating {
    border-color: #e8590c;
  }
  #measured {
    font-size: 5em;
  }
  #set {
    font-size: 1.5em;
    color: #aaa;
  }
  #busy {
    visibility: hidden;
    color: #ffd43b;
  }
  #message {
    color: #ff6b6b;
    min-height: 1.5em;
  }
  .ind {
    display: inline-block;
    margin: 0 10px;
    color: #555;
  }
  .ind.on {
    color: #69db7c;
  }
  button {
    height: 80px;
    width: 120px;
    margin: 5px;
    font-size: 1.5em;
  }
  </style>
</head>
<body>
  <div id="display" class="{{if .Heater}}heating{{end}}">
    <div id="measured">{{.Measured}}</div>
    <div id="set"><span id="setlabel">{{.SetLabel}}</span> <span id="setvalue">{{.Set}}</span></div>
    <div id="busy">working...</div>
  </div>
  <div>
    <span class="ind{{if .Heater}} on{{end}}" id="heater">Heater</span>
    <span class="ind{{if .Pump}} on{{end}}" id="pump">Pump</span>
    <span class="ind{{if .Light}} on{{end}}" id="light">Light</span>
  </div>
  <p id="message">{{.Message}}</p>
  <div>
    <button onclick="send({Press: 'cool'})">&#9660;</button>
    <button onclick="send({Press: 'warm'})">&#9650;</button>
  </div>
  <div>
    <button onclick="send({Preset: 'cold'})">Set Cold</button>
    <button onclick="send({Preset: 'hot'})">Set Hot</button>
  </div>
  <div>
    <button onclick="send({Press: 'pump'})">Pump</button>
    <button onclick="send({Press: 'lights'})">Lights</button>
  </div>
  <div>
    <input type="number" id="target" style="font-size: 1.5em; width: 100px" />
    <button onclick="setTarget()">Set</button>
  </div>
  <script>
    var ws;
    function connect() {
      var proto = location.protocol === "https:" ? "wss://" : "ws://";
      ws = new WebSocket(proto + location.host + "/stream");
      ws.onmessage = function(evt) { update(JSON.parse(evt.data)); };
      ws.onclose = function() { setTimeout(connect, 2000); };
    }
    function update(v) {
      document.getElementById("measured").textContent = v.Measured;
      document.getElementById("setlabel").textContent = v.SetLabel;
      document.getElementById("setvalue").textContent = v.Set;
      document.getElementById("busy").style.visibility = v.Busy ? "visible" : "hidden";
      document.getElementById("message").textContent = v.Message || (v.ErrorCode ? "Error " + v.ErrorCode : "");
      document.getElementById("display").className = v.Heater ? "heating" : "";
      ["heater", "pump", "light"].forEach(function(k) {
        var on = v[k.charAt(0).toUpperCase() + k.slice(1)];
        document.getElementById(k).className = on ? "ind on" : "ind";
      });
    }
    function send(req) {
      if (ws && ws.readyState === WebSocket.OPEN) {
        ws.send(JSON.stringify(req));
      }
    }
    function setTarget() {
      var t = parseFloat(document.getElementById("target").value);
      if (!isNaN(t)) {
        send({SetTemp: t});
      }
    }
    connect();
  </script>
</body>
</html>`

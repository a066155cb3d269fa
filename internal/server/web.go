package server

import "net/http"

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// indexHTML is the single-page console. It talks to the JSON API only;
// nothing here is security-enforcing.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>shellgate</title>
<style>
body{font-family:monospace;background:#1e1e1e;color:#d4d4d4;display:flex;flex-direction:column;height:100vh;margin:0}
#header{padding:1rem;background:#252526;border-bottom:1px solid #333;display:flex;justify-content:space-between;align-items:center}
#main{display:flex;flex:1;overflow:hidden}
#sidebar{width:300px;background:#252526;padding:1rem;overflow-y:auto;border-right:1px solid #333}
#content{flex:1;padding:1rem;display:flex;flex-direction:column}
#output{flex:1;background:#1e1e1e;padding:1rem;overflow-y:auto;white-space:pre-wrap;margin-bottom:1rem;border:1px solid #333;border-radius:4px}
#input-form{display:flex;gap:.5rem}
#command-input{flex:1;background:#3c3c3c;color:#d4d4d4;border:1px solid #3c3c3c;padding:.5rem;border-radius:4px}
#history-list{list-style:none;padding:0}
#history-list li{padding:.5rem;cursor:pointer;border-radius:4px;margin-bottom:5px;word-break:break-all}
#history-list li:hover{background:#3c3c3c}
.prompt{color:#608b4e}.error{color:#f44747}.command-echo{color:#569cd6;font-weight:bold}
.exit-ok{color:#4ec9b0}.exit-fail{color:#f44747}
</style>
</head>
<body>
<div id="header"><h1>shellgate</h1><div id="session-info"></div></div>
<div id="main">
<div id="sidebar"><h2>History</h2><ul id="history-list"></ul></div>
<div id="content">
<div id="output"></div>
<form id="input-form" onsubmit="sendCommand(event)">
<span class="prompt">$&nbsp;</span>
<input id="command-input" type="text" autocomplete="off" autofocus/>
</form>
</div>
</div>
<script>
let sessionId;
const outputEl=document.getElementById('output');
const historyEl=document.getElementById('history-list');
const inputEl=document.getElementById('command-input');
async function initSession(){
  const r=await fetch('/api/session',{method:'POST'});
  const d=await r.json();
  sessionId=d.session_id;
  document.getElementById('session-info').innerText='Session: '+sessionId.substring(0,8);
}
async function sendCommand(e){
  e.preventDefault();
  const c=inputEl.value.trim();
  if(!c)return;
  appendOutput('$ '+c,'command-echo');
  inputEl.value='';
  const f=new URLSearchParams();
  f.append('command',c);
  f.append('session_id',sessionId);
  try{
    const r=await fetch('/api/execute',{method:'POST',body:f});
    const d=await r.json();
    if(d.stdout)appendOutput(d.stdout);
    if(d.stderr)appendOutput(d.stderr,'error');
    if(d.error)appendOutput(d.error,'error');
    if(typeof d.exit_code==='number')appendOutput('Exit Code: '+d.exit_code,d.exit_code===0?'exit-ok':'exit-fail');
    updateHistory();
  }catch(err){
    appendOutput('Network Error: '+err,'error');
  }finally{
    outputEl.scrollTop=outputEl.scrollHeight;
  }
}
function appendOutput(text,className){
  const d=document.createElement('div');
  if(className)d.className=className;
  d.textContent=text;
  outputEl.appendChild(d);
}
async function updateHistory(){
  const r=await fetch('/api/history?session_id='+sessionId);
  if(!r.ok)return;
  const h=await r.json();
  historyEl.innerHTML='';
  h.reverse().forEach(item=>{
    const l=document.createElement('li');
    l.textContent=item.command;
    l.onclick=()=>{inputEl.value=item.command;inputEl.focus()};
    historyEl.appendChild(l);
  });
}
window.onload=initSession;
</script>
</body>
</html>
`

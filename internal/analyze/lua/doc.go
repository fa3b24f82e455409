// Package lua implements an analyzer whose checks are Lua rule scripts.
//
// A rule set is a directory holding a rules.yaml manifest and one Lua
// file per rule:
//
//	rules.yaml
//	redundant.lua
//	cliche.lua
//
// The manifest lists the rules and their metadata:
//
//	rules:
//	  - id: redundant-modifier
//	    file: redundant.lua
//	    severity: warning
//	  - id: cliche
//	    file: cliche.lua
//	    enabled: false
//
// # Rule Contract
//
// Each rule file defines a global function
//
//	function check(text, meta)
//
// where text is the chunk text and meta is a JSON object string with
// chunk_id, chunk_index, chunk_start, chunk_end, and rule_id fields.
// The function returns a JSON array of findings, or nil for none:
//
//	function check(text, meta)
//	  local hits = {}
//	  local from = 1
//	  while true do
//	    local s, e = string.find(text, "very unique", from, true)
//	    if not s then break end
//	    hits[#hits + 1] = string.format(
//	      '{"message":"unique needs no intensifier","start":%d,"end":%d}',
//	      s - 1, e)
//	    from = e + 1
//	  end
//	  return "[" .. table.concat(hits, ",") .. "]"
//	end
//
// Finding offsets are 0-based half-open byte offsets into the chunk
// text. Lua's string.find returns 1-based inclusive positions, so start
// is s-1 and end is e unchanged. Each finding may carry category,
// message, suggestion, severity, start, end, and matched fields; category
// and severity fall back to the manifest entry when omitted.
//
// # Sandbox
//
// Rules run in a restricted Lua state: only the base, table, string, and
// math libraries are open, and the load family of functions is removed.
// Each check call runs under a deadline, so a runaway rule cannot stall
// the pipeline.
package lua

// Package rdio speaks the rdio-scanner websocket protocol.
//
// Requests and responses are JSON arrays whose first element is a tag:
//
//	["VER"]                                  -> ["VER", {...}]
//	["CFG"]                                  -> ["CFG", {"systems": [...]}]
//	["LCL", {"system": 1, "talkgroup": 2,
//	         "sort": -1, "date": "...",
//	         "limit": 200, "offset": 0}]     -> ["LCL", {"count": n, "results": [...]}]
//	["CAL", 1234, "d"]                       -> ["CAL", {"id": 1234, "audio": {...}, ...}]
//
// The server carries no request ids. A response is matched to its request only by
// arrival order and tag, and the server interleaves unsolicited frames (for
// example "LSC" listener counts) on the same connection. [Client.Request] therefore
// reads frames until one with an expected tag arrives, discarding the rest.
//
// # Usage
//
//	client := rdio.NewClient(conn, rdio.Options{})
//	cfg, err := client.Config(ctx)
//	dir, err := rdio.NewDirectory(cfg)
//	tg, err := dir.Resolve("Fire Dispatch")
//
//	page, err := client.ListCalls(ctx, rdio.ListQuery{
//	    System: tg.System, Talkgroup: tg.ID,
//	    Sort: rdio.SortDescending, Date: &end,
//	    Limit: 200,
//	})
//
//	detail, err := client.Call(ctx, page.Results[0].ID)
//
// A Client is not safe for concurrent use. Exactly one request is outstanding at a
// time, which is what keeps tag-based correlation sound.
package rdio

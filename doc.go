// Package yui is the request-processing core of the Yui chat service.
//
// A user message flows through a cascade of cheap responders before any
// model call is made: the intent router, the local brain, the response
// cache, and only then the LLM agent loop with tool calling. The packages
// under this module provide that cascade plus the substrate it runs on:
// the tool registry and dispatcher, the sandboxed code executor, the
// workspace file-system bridge, the background job queue, and the
// resource governor that degrades features before the host runs out of
// memory.
//
// Entry point for callers is pipeline.Pipeline; see cmd/yui for a
// working wiring.
package yui

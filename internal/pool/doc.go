// Package pool keeps reusable SSH sessions per host.
//
// Each pool key (host name and port) holds at most MaxConnections entries.
// An entry is either borrowed by exactly one caller or idle. Idle entries
// are closed after IdleTimeout without reuse, and the optional health loop
// probes idle entries with a no-op command, closing any that fail. An
// entry under check is never handed out; when it is all that stands
// between Acquire and the limit, Acquire waits for the result.
package pool

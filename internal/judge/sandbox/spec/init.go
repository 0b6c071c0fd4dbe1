package spec

// InitRequest is the JSON document the engine writes to the sandbox-init
// helper's stdin. The helper applies it and then execs RunSpec.Cmd.
type InitRequest struct {
	RunSpec       RunSpec
	Isolation     IsolationProfile
	EnableSeccomp bool
	EnableNs      bool
	NprocRlimit   bool
}

// StatusFD is the descriptor on which the helper reports setup failures.
// The helper marks it close-on-exec, so the engine reads EOF without data
// once the user program has replaced the helper.
const StatusFD = 3

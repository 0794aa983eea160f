package launcher

// ChildSpec is handed from the parent to the self-reexec child helper (see
// cmd/cinit's "__childexec" hidden subcommand) over an inherited pipe fd,
// JSON-encoded. It carries everything needed to perform §4.4 step 4's
// child-side setup (credentials, capabilities, chdir, signal reset) before
// the final execve, since between fork and exec only the data already
// captured here -- not live Go objects -- can safely cross.
type ChildSpec struct {
	Path         string   `json:"path"`
	Args         []string `json:"args"`
	Env          []string `json:"env"`
	Workdir      string   `json:"workdir,omitempty"`
	UID          uint32   `json:"uid"`
	GID          uint32   `json:"gid"`
	Groups       []uint32 `json:"groups,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ChildSpecFD is the file descriptor number the spec arrives on inside the
// child helper: fd 3, the first entry of exec.Cmd.ExtraFiles.
const ChildSpecFD = 3

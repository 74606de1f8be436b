package system

// NewQueryRegTool returns a RegTool that decides key existence from
// reg query output on every platform.
func NewQueryRegTool(r Runner) *RegTool {
	return &RegTool{runner: r}
}

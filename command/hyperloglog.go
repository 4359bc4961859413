package command

// PFAdd adds elements to a HyperLogLog.
type PFAdd struct {
	Key      []byte
	Elements [][]byte
}

// PFCount counts the union of one or more HyperLogLogs.
type PFCount struct {
	Sources [][]byte
}

// PFMerge merges HyperLogLogs into a destination.
type PFMerge struct {
	Dest    []byte
	Sources [][]byte
}

func (*PFAdd) Name() string   { return "PFADD" }
func (*PFCount) Name() string { return "PFCOUNT" }
func (*PFMerge) Name() string { return "PFMERGE" }

func (c *PFAdd) Keys() [][]byte   { return [][]byte{c.Key} }
func (c *PFCount) Keys() [][]byte { return c.Sources }
func (c *PFMerge) Keys() [][]byte { return append([][]byte{c.Dest}, c.Sources...) }

func parsePFAdd(args [][]byte) (Command, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	return &PFAdd{Key: args[1], Elements: args[2:]}, nil
}

func parsePFCount(args [][]byte) (Command, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	return &PFCount{Sources: args[1:]}, nil
}

func parsePFMerge(args [][]byte) (Command, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	return &PFMerge{Dest: args[1], Sources: args[2:]}, nil
}

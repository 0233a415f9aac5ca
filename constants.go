package main

const (
	ExitOK      = 0
	ExitFailure = 1
	IndexFirst  = 0
	SnapshotExt = ".msgpack"
	DirPerm     = 0750
	FilePerm    = 0600
)

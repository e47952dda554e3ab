package store

var (
	Placeholders = placeholders
	InChunks     = inChunks
)

const MaxInList = maxInList

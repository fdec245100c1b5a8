package nfs3

// Exported aliases for unexported identifiers, so the external test
// package (nfs3_test) can exercise them without creating an import
// cycle with internal/backend/memory, which itself imports nfs3.

var (
	HandleGetattr  = handleGetattr
	HandleLookup   = handleLookup
	HandleWrite    = handleWrite
	HandleCreate   = handleCreate
	HandleLink     = handleLink
	HandleFsstat   = handleFsstat
	HandlePathconf = handlePathconf

	EncodeFileHandle = encodeFileHandle
	DecodeFileHandle = decodeFileHandle
)

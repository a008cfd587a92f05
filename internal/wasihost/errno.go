package wasihost

// WASI preview1 errno values, as defined by the snapshot-01 ABI. Only the
// subset this host actually returns is declared.
const (
	errnoSuccess uint32 = 0
	errnoAcces   uint32 = 2
	errnoBadf    uint32 = 8
	errnoExist   uint32 = 20
	errnoFault   uint32 = 21
	errnoInval   uint32 = 28
	errnoIO      uint32 = 29
	errnoIsdir   uint32 = 31
	errnoNoent   uint32 = 44
	errnoNosys   uint32 = 52
	errnoNotdir  uint32 = 54
	errnoNotsup  uint32 = 58
	errnoPerm    uint32 = 63
	errnoSpipe   uint32 = 70
)

// WASI filetype values used in fdstat/filestat records.
const (
	filetypeUnknown     uint8 = 0
	filetypeDirectory   uint8 = 3
	filetypeRegularFile uint8 = 4
	filetypeCharDevice  uint8 = 2
)

// path_open oflags bits.
const (
	oflagCreat uint32 = 1 << 0
	oflagDir   uint32 = 1 << 1
	oflagExcl  uint32 = 1 << 2
	oflagTrunc uint32 = 1 << 3
)

// Rights bits relevant to open intent detection.
const (
	rightFdRead  uint64 = 1 << 1
	rightFdWrite uint64 = 1 << 6
)

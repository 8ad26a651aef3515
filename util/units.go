package util

const bytesPerMB = 1024 * 1024

// BytesToMB converts a byte count to whole megabytes, truncating any remainder
func BytesToMB(bytes uint64) int64 {
	return int64(bytes / bytesPerMB)
}


package bres

// ClearProcessed drops the processed flag so Resolve runs again.
func ClearProcessed(c *Container) {
	c.header.Version &^= versionProcessedBit
}

package pik

// Spatial subdivision constants. Groups are the unit of parallel decode,
// tiles the unit of incremental decode within a group; both are fixed by
// the format.
const (
	// BlockDim is the transform block size in pixels.
	BlockDim = 8

	// TileDimInBlocks and GroupDimInBlocks are the tile and group edge
	// lengths in blocks.
	TileDimInBlocks  = 8
	GroupDimInBlocks = 64

	// TileDim and GroupDim are the tile and group edge lengths in pixels.
	TileDim  = BlockDim * TileDimInBlocks
	GroupDim = BlockDim * GroupDimInBlocks

	// NumTilesPerGroup is the fixed tile count of every group header.
	NumTilesPerGroup = (GroupDimInBlocks / TileDimInBlocks) *
		(GroupDimInBlocks / TileDimInBlocks)
)

// NumGroups returns the group count for an image of the given dimensions.
// Pass headers store one table-of-contents entry per group; the count
// itself is derived from the file header's geometry rather than
// re-serialized.
func NumGroups(xsize, ysize uint32) int {
	gx := (int(xsize) + GroupDim - 1) / GroupDim
	gy := (int(ysize) + GroupDim - 1) / GroupDim
	return gx * gy
}

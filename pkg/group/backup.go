package group

// HasSuperblockBackup reports whether `group` carries a copy of the
// superblock and descriptor table under the sparse-superblock policy:
// groups 0 and 1 and every power of 3, 5 and 7.
func HasSuperblockBackup(group uint32) bool {
	return group == 0 || group == 1 ||
		isPowerOf(group, 3) || isPowerOf(group, 5) || isPowerOf(group, 7)
}

func isPowerOf(x, base uint32) bool {
	if x < 1 {
		return false
	}
	for x%base == 0 {
		x /= base
	}
	return x == 1
}

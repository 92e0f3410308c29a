package types

// InodeStore loads and stores inode records by number. `Get` fills in
// `output.Ino` itself.
type InodeStore interface {
	Put(inode *Inode) error
	Get(ino Ino, output *Inode) error
}

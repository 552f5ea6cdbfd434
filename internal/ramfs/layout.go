package ramfs

var defaultMotd = []byte("Welcome to Othello OS!\nType: help, ls, cat, write, mkdir, touch, cd, pwd, sync\n")

// InitDefaultLayout seeds the standard directories and starter files of a
// fresh system. Applied without dirty marks, the way replay would; callers
// use it when the persistent region is empty.
func (fs *RamFS) InitDefaultLayout() {
	_ = fs.ApplyMkdir("/etc")
	_ = fs.ApplyMkdir("/home")
	_ = fs.ApplyMkdir("/home/user")
	_ = fs.ApplyMkdir("/bin")
	_ = fs.ApplyPut("/etc/motd", defaultMotd)
	_ = fs.ApplyPut("/home/user/readme.txt", []byte("This is your home directory.\n"))
}

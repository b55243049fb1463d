// Package repository provides Session, a reusable repository base over Bun's
// query builder. Builder calls refine a single-use pending query; terminal
// calls apply the default order and global scope, execute, and reset it.
package repository

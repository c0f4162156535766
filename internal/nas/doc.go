// Package nas models storage targets and routes resolved categories to
// concrete destination paths, mounting network shares on demand.
package nas

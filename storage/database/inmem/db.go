package inmemdb

import (
	"sync"

	"github.com/tesoreria/backend/core/student"
)

type (
	// DB keeps the roster in memory. Used in DEV/TEST and by the CLI dry runs.
	DB struct {
		student *studentTable
	}

	studentTable struct {
		sync.RWMutex
		table    map[string]*student.Student
		contacts map[string]student.Contact
		receipts []student.Receipt
		notices  []student.Notice
	}
)

func Open() *DB {
	return &DB{
		student: &studentTable{
			table:    make(map[string]*student.Student),
			contacts: make(map[string]student.Contact),
		},
	}
}

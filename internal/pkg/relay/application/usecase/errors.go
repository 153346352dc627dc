package usecase

import "fmt"

// ErrPersistence indicates an infrastructure/store failure inside a use case.
var ErrPersistence = fmt.Errorf("relay use case persistence error")

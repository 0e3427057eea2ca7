package handlers

import "log"

func logStorageError(op string, err error) {
	log.Printf("%s: storage error: %v", op, err)
}

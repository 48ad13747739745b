package pkg

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"unsafe"
)

// BytesToString converts bytes slice to a string without extra allocation
func BytesToString(buf []byte) string {
	return *(*string)(unsafe.Pointer(&buf))
}

// GenerateRandomBytes returns securely generated random bytes.
// It will return an error if the system's secure random
// number generator fails to function correctly, in which
// case the caller should not continue
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	// Note that err == nil only if we read len(b) bytes.
	if err != nil {
		return nil, err
	}

	return b, nil
}

const randomStringCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRandomString returns a securely generated random string of length s.
func GenerateRandomString(s int) (string, error) {
	if s <= 0 {
		return "", errors.New("invalid random string length")
	}

	b, err := GenerateRandomBytes(s)
	if err != nil {
		return "", err
	}

	for i := range b {
		b[i] = randomStringCharset[int(b[i])%len(randomStringCharset)]
	}

	return BytesToString(b), nil
}

// PathExists returns whether the given file or directory exists
func PathExists(path string, isDir bool) (bool, error) {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if stat.IsDir() != isDir {
		return false, fmt.Errorf("path %s found, but is not a directory / regular file as expected", path)
	}
	return true, nil
}

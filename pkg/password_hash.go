package pkg

import "golang.org/x/crypto/bcrypt"

const bcryptCost = 14

// HashPassword returns the bcrypt hash of the password, at the cost the
// admin credentials are minted with.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return BytesToString(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

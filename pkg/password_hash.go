package pkg

import "golang.org/x/crypto/bcrypt"

// bcryptCost is deliberately high to keep offline brute force expensive
// in case the credential record ever leaks.
const bcryptCost = 12

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return BytesToString(bytes), err
}

// CheckPasswordHash returns false for any mismatch or an empty/invalid
// stored hash, it never panics.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

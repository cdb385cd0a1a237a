package config

// SetSecretsDir points secret lookups at dir for the duration of a test.
func SetSecretsDir(dir string) func() {
	prev := secretsDir
	secretsDir = dir
	return func() { secretsDir = prev }
}

package dbx

// ConnConfig represents the configuration required to open physical connections.
//
// When DSN is set it takes precedence over the discrete fields.
type ConnConfig struct {
	DSN      string
	Host     string
	Port     int32
	DBName   string
	User     string
	Password string
	MaxConn  int32
}

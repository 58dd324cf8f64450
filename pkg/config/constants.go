package config

// EnvPrefix is the envconfig prefix shared by every binary.
const EnvPrefix = "ketoplan"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "KETOPLAN_DB_DSN"
	EnvDBHost = "KETOPLAN_DB_HOST"
	EnvDBUser = "KETOPLAN_DB_USER"
	EnvDBName = "KETOPLAN_DB_NAME"
)

var componentDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

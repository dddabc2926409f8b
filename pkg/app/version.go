package app

var (
	Repository,
	Version,
	BuildDate,
	GitBranch,
	GitHash string
)

type AppVersion struct {
	Name       string `json:"name"`
	Repository string `json:"repository"`
	Version    string `json:"version"`
	GitBranch  string `json:"gitBranch"`
	GitHash    string `json:"gitHash"`
	BuildDate  string `json:"buildDate"`
}

func GetVersion() *AppVersion {
	return &AppVersion{
		Name:       Name,
		Repository: Repository,
		Version:    Version,
		GitBranch:  GitBranch,
		GitHash:    GitHash,
		BuildDate:  BuildDate}
}

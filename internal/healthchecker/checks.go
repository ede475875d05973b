package healthchecker

import (
	"net/http"
	"time"

	"github.com/shiplog-app/shiplog/internal/config"
	"github.com/shiplog-app/shiplog/internal/database"
)

const probeTimeout = 10 * time.Second

func CheckDB() bool {
	_, err := database.NewDatabase()
	return err == nil
}

func CheckCategorizer() bool {
	baseURL := config.Conf.OpenAIBaseUrl
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return probe(baseURL + "/models")
}

func CheckGithub() bool {
	return probe(config.Conf.GithubBaseUrl)
}

// probe treats any HTTP response as reachable; only transport failures
// keep the service marked broken.
func probe(url string) bool {
	client := &http.Client{Timeout: probeTimeout}

	resp, err := client.Get(url)
	if err != nil {
		return false
	}

	_ = resp.Body.Close()

	return true
}

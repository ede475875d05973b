package circuitbreak

import "github.com/shiplog-app/shiplog/internal/logging"

var CircuitBreakChan chan string

const (
	CategorizerService = "categorizer"
	GithubService      = "github"
	DBService          = "database"
)

func Init() {
	CircuitBreakChan = make(chan string)
}

func TriggerError(service string) {
	if CircuitBreakChan == nil {
		logging.Logger.Fatal("shiplog app is not created")
	}

	CircuitBreakChan <- service
}

package gateway

import "fmt"

// Operaciones que el gateway acepta.
const (
	OpRegister      = "register"
	OpLogin         = "login"
	OpVerifySession = "verifySession"
	OpProcessPrompt = "processPrompt"
)

// Topics del mesh.
const (
	TopicGateway    = "gateway"
	TopicAccount    = "account"
	TopicProcessing = "processing"
)

// route mapea una operación del gateway al (topic, operación) downstream
// más el shape check específico del payload.
type route struct {
	topic    string
	op       string
	validate func(data map[string]any) error
}

var routes = map[string]route{
	OpRegister:      {topic: TopicAccount, op: "register", validate: validateCredentials},
	OpLogin:         {topic: TopicAccount, op: "login", validate: validateCredentials},
	OpProcessPrompt: {topic: TopicProcessing, op: "processRequest", validate: validatePrompt},
}

func validateCredentials(data map[string]any) error {
	if s, ok := data["identity"].(string); !ok || s == "" {
		return fmt.Errorf("identity must be a non-empty string")
	}
	if s, ok := data["password"].(string); !ok || s == "" {
		return fmt.Errorf("password must be a non-empty string")
	}
	return nil
}

func validatePrompt(data map[string]any) error {
	if s, ok := data["prompt"].(string); !ok || s == "" {
		return fmt.Errorf("prompt must be a non-empty string")
	}
	return nil
}

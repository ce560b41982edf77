package domain

// Имена простых команд. Команда согласования не может совпадать ни с одной из них.
const (
	HelloCommand = "/hello"
	EchoCommand  = "/echo"
	SumCommand   = "/sum"
	QuoteCommand = "/quote"
)

// UtilityCommands — все простые команды в порядке регистрации.
func UtilityCommands() []string {
	return []string{HelloCommand, EchoCommand, SumCommand, QuoteCommand}
}

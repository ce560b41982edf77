package infra

const (
	// RedisNamespace Базовый префикс для изоляции данных бота в Redis
	RedisNamespace = "approvalbot"
)

// Ключи для блокировок
const (
	// RedisKeyDecisionClaim + "<channel>:<ts>" — кто первым нажал кнопку на сообщении.
	RedisKeyDecisionClaim = RedisNamespace + ":approvals:claim:"
)

// DecisionClaimKey Генератор ключа блокировки решения по ключу сообщения
func DecisionClaimKey(messageKey string) string {
	return RedisKeyDecisionClaim + messageKey
}

// Package intent implements the pure decision functions of the conversational
// engine: mapping intents to topics, detecting topic transitions, and choosing
// the primary intent when several are detected at once.
package intent

import "github.com/aftorrescurrea/chatbot-sub000/internal/models"

// intentTopic maps one intent to its topic. The slice order is the priority
// order: the first detected intent that appears here decides the topic.
type intentTopic struct {
	Intent string
	Topic  models.Topic
}

// topicPriority is the static intent-to-topic table, highest priority first.
var topicPriority = []intentTopic{
	{models.IntentSolicitudPrueba, models.TopicTrialRequest},
	{models.IntentSoporteTecnico, models.TopicTechnicalSupport},
	{models.IntentQueja, models.TopicComplaint},
	{models.IntentCancelacion, models.TopicCancellation},
	{models.IntentTutorial, models.TopicTutorial},
	{models.IntentInteresServicio, models.TopicServiceInquiry},
	{models.IntentConsultaServicios, models.TopicServiceInquiry},
}

// topicIntents lists, per topic, the intents that belong to it. Used for the
// topic-continuity rule in primary intent resolution.
var topicIntents = map[models.Topic][]string{
	models.TopicTrialRequest:     {models.IntentSolicitudPrueba},
	models.TopicTechnicalSupport: {models.IntentSoporteTecnico},
	models.TopicComplaint:        {models.IntentQueja},
	models.TopicCancellation:     {models.IntentCancelacion},
	models.TopicTutorial:         {models.IntentTutorial},
	models.TopicServiceInquiry:   {models.IntentInteresServicio, models.IntentConsultaServicios},
}

// strongIntents are intents whose appearance makes a topic change more credible.
var strongIntents = map[string]bool{
	models.IntentSolicitudPrueba: true,
	models.IntentSoporteTecnico:  true,
	models.IntentQueja:           true,
	models.IntentCancelacion:     true,
}

// resolutionPriority orders intents for the fallback rule in primary intent
// resolution: actionable intents before informational and social ones.
var resolutionPriority = []string{
	models.IntentSolicitudPrueba,
	models.IntentSoporteTecnico,
	models.IntentQueja,
	models.IntentCancelacion,
	models.IntentTutorial,
	models.IntentInteresServicio,
	models.IntentConsultaServicios,
	models.IntentConfirmacion,
	models.IntentNegacion,
	models.IntentAgradecimiento,
	models.IntentDespedida,
	models.IntentSaludo,
}

// TopicFor maps a set of detected intents to a candidate topic. The first
// intent in priority order that is present wins; no mapped intent means the
// general topic.
func TopicFor(intents []string) models.Topic {
	for _, entry := range topicPriority {
		for _, detected := range intents {
			if detected == entry.Intent {
				return entry.Topic
			}
		}
	}
	return models.TopicGeneral
}

// isTrialRelated reports whether a topic concerns the trial offer.
func isTrialRelated(topic models.Topic) bool {
	return topic == models.TopicTrialRequest || topic == models.TopicServiceInquiry
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}

package clinicinfo

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Topic is one category of clinic information a patient can ask about.
type Topic string

const (
	TopicHours     Topic = "hours"
	TopicAddress   Topic = "address"
	TopicContact   Topic = "contact"
	TopicServices  Topic = "services"
	TopicDoctors   Topic = "doctors"
	TopicInsurance Topic = "insurance"
	TopicGeneral   Topic = "general"
)

// defaultKnowledge is the built-in answer set, used when no knowledge file
// is configured. Deployments override it with CLINIC_INFO_PATH.
var defaultKnowledge = map[Topic]string{
	TopicHours:     "We're open Monday through Friday from 9:00 AM to 5:00 PM. We're closed on weekends and public holidays.",
	TopicAddress:   "You'll find us at 123 Main Street, Suite 200. There's free patient parking behind the building.",
	TopicContact:   "You can reach the front desk at (555) 010-0199 or email frontdesk@clinic.example. For emergencies, please call 911.",
	TopicServices:  "We offer general consultations, annual checkups, vaccinations, lab work, and specialist referrals.",
	TopicDoctors:   "Our physicians are Dr. Lee, Dr. Smith, and Dr. Garcia. All of them see patients Monday through Friday.",
	TopicInsurance: "We accept most major insurance plans. Bring your insurance card to your visit and we'll verify coverage at check-in.",
	TopicGeneral:   "We're a full-service clinic open weekdays 9 to 5 at 123 Main Street. I can tell you more about our hours, services, doctors, insurance, or how to reach us.",
}

// Store holds the clinic's answer per topic.
type Store struct {
	answers map[Topic]string
}

// NewStore returns a store with the built-in answers.
func NewStore() *Store {
	answers := make(map[Topic]string, len(defaultKnowledge))
	for topic, answer := range defaultKnowledge {
		answers[topic] = answer
	}
	return &Store{answers: answers}
}

// LoadStore reads a JSON knowledge file of the form {"hours": "...", ...}.
// Topics missing from the file keep the built-in answer.
func LoadStore(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("clinicinfo: failed to read knowledge file: %w", err)
	}

	var loaded map[Topic]string
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("clinicinfo: failed to parse knowledge file: %w", err)
	}

	store := NewStore()
	for topic, answer := range loaded {
		if strings.TrimSpace(answer) != "" {
			store.answers[topic] = answer
		}
	}
	return store, nil
}

// Lookup returns the answer for a topic and whether one exists.
func (s *Store) Lookup(topic Topic) (string, bool) {
	answer, ok := s.answers[topic]
	return answer, ok
}

// Summary renders the whole knowledge base as one block of text, used as
// grounding context when a question doesn't match a known topic.
func (s *Store) Summary() string {
	topics := make([]string, 0, len(s.answers))
	for topic := range s.answers {
		topics = append(topics, string(topic))
	}
	sort.Strings(topics)

	var b strings.Builder
	for _, topic := range topics {
		fmt.Fprintf(&b, "%s: %s\n", topic, s.answers[Topic(topic)])
	}
	return b.String()
}

var topicKeywords = map[Topic][]string{
	TopicHours:     {"hour", "open", "close", "closing", "opening", "when are you", "weekend", "holiday"},
	TopicAddress:   {"address", "location", "where are you", "where is", "directions", "parking"},
	TopicContact:   {"phone", "call you", "contact", "email", "reach you"},
	TopicServices:  {"service", "offer", "treatment", "vaccination", "checkup", "lab"},
	TopicDoctors:   {"doctor", "physician", "who works", "specialist", "staff"},
	TopicInsurance: {"insurance", "coverage", "covered", "plan", "copay"},
}

// topicOrder fixes the match precedence so detection is deterministic.
var topicOrder = []Topic{
	TopicInsurance, TopicDoctors, TopicServices, TopicAddress, TopicContact, TopicHours,
}

// DetectTopic picks the topic a question is about, or TopicGeneral when
// nothing matches.
func DetectTopic(message string) Topic {
	text := strings.ToLower(message)
	for _, topic := range topicOrder {
		for _, kw := range topicKeywords[topic] {
			if strings.Contains(text, kw) {
				return topic
			}
		}
	}
	return TopicGeneral
}

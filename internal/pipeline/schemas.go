package pipeline

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/ppiankov/claimtree/internal/llm"
	"github.com/ppiankov/claimtree/internal/model"
)

type taxonomyOutput struct {
	Taxonomy []model.Topic `json:"taxonomy"`
}

type claimsOutput struct {
	Claims []model.ExtractedClaim `json:"claims"`
}

type dedupGroup struct {
	PrimaryID    string   `json:"primaryId"`
	DuplicateIDs []string `json:"duplicateIds"`
}

type dedupOutput struct {
	Groups []dedupGroup `json:"groups"`
}

type cruxOutput struct {
	Statement string   `json:"statement"`
	Agree     []string `json:"agree"`
	Disagree  []string `json:"disagree"`
}

func taxonomySchema() (*llm.Schema, error) {
	subtopic := llm.Object(map[string]*jsonschema.Schema{
		"subtopicName":             llm.String("Short subtopic name, unique across the taxonomy"),
		"subtopicShortDescription": llm.String("One sentence describing the subtopic"),
	})
	topic := llm.Object(map[string]*jsonschema.Schema{
		"topicName":             llm.String("Short topic name"),
		"topicShortDescription": llm.String("One sentence describing the topic"),
		"subtopics":             llm.ArrayOf(subtopic),
	})
	root := llm.Object(map[string]*jsonschema.Schema{
		"taxonomy": llm.ArrayOf(topic),
	})
	return llm.NewSchema(OpTaxonomy, "Topic and subtopic taxonomy of the comments", root)
}

// claimsSchema restricts topic and subtopic names to the taxonomy's exact
// strings. It is rebuilt for every taxonomy.
func claimsSchema(tax model.Taxonomy) (*llm.Schema, error) {
	topics := tax.TopicNames()
	subtopics := tax.SubtopicNames()
	if len(topics) == 0 || len(subtopics) == 0 {
		return nil, fmt.Errorf("claims schema: taxonomy has no names to enumerate")
	}

	claim := llm.Object(map[string]*jsonschema.Schema{
		"claim":        llm.String("A short general assertion made by the comment"),
		"quote":        llm.String("Exact text from the comment backing the claim"),
		"topicName":    llm.Enum("Topic of the claim", topics),
		"subtopicName": llm.Enum("Subtopic of the claim", subtopics),
	})
	root := llm.Object(map[string]*jsonschema.Schema{
		"claims": llm.ArrayOf(claim),
	})
	return llm.NewSchema(OpClaims, "Claims extracted from one comment", root)
}

func dedupSchema() (*llm.Schema, error) {
	group := llm.Object(map[string]*jsonschema.Schema{
		"primaryId":    llm.String("Id of the claim that represents the group"),
		"duplicateIds": llm.ArrayOf(llm.String("Id of a claim duplicating the primary")),
	})
	root := llm.Object(map[string]*jsonschema.Schema{
		"groups": llm.ArrayOf(group),
	})
	return llm.NewSchema(OpDedup, "Near-duplicate claim groups", root)
}

func cruxSchema() (*llm.Schema, error) {
	root := llm.Object(map[string]*jsonschema.Schema{
		"statement": llm.String("A statement that splits the participants"),
		"agree":     llm.ArrayOf(llm.String("Participant who would agree")),
		"disagree":  llm.ArrayOf(llm.String("Participant who would disagree")),
	})
	return llm.NewSchema(OpCrux, "Crux of a subtopic", root)
}

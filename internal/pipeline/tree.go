package pipeline

import (
	"sort"

	"github.com/ppiankov/claimtree/internal/model"
)

// AssembleTree places deduplicated groups under their taxonomy topics and
// sorts by support: claims by 1+duplicates, subtopics by claim count, topics
// by total claim count, all descending. Ties keep taxonomy and claim order.
// Subtopics without claims and topics without subtopics are left out.
func AssembleTree(tax model.Taxonomy, groups []DedupedGroup) model.Tree {
	bySubtopic := make(map[string][]model.Claim, len(groups))
	for _, g := range groups {
		bySubtopic[g.Subtopic] = append(bySubtopic[g.Subtopic], g.Claims...)
	}

	tree := model.Tree{Topics: []model.TopicNode{}}
	for _, topic := range tax {
		node := model.TopicNode{Name: topic.Name, ShortDescription: topic.ShortDescription}
		for _, sub := range topic.Subtopics {
			claims := bySubtopic[sub.Name]
			if len(claims) == 0 {
				continue
			}
			claims = append([]model.Claim(nil), claims...)
			sort.SliceStable(claims, func(i, j int) bool {
				return claims[i].Support() > claims[j].Support()
			})
			node.Subtopics = append(node.Subtopics, model.SubtopicNode{
				Name:             sub.Name,
				ShortDescription: sub.ShortDescription,
				Claims:           claims,
			})
		}
		if len(node.Subtopics) == 0 {
			continue
		}
		sort.SliceStable(node.Subtopics, func(i, j int) bool {
			return len(node.Subtopics[i].Claims) > len(node.Subtopics[j].Claims)
		})
		tree.Topics = append(tree.Topics, node)
	}

	sort.SliceStable(tree.Topics, func(i, j int) bool {
		return tree.Topics[i].ClaimCount() > tree.Topics[j].ClaimCount()
	})
	return tree
}

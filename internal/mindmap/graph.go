package mindmap

import (
	"sort"
	"time"

	"github.com/blok-hamster/kol-play-core/internal/domain"
)

// Visual weight multipliers. Node sizes scale with trade activity.
const (
	tokenValueMultiplier = 10
	kolValueMultiplier   = 5
)

// BuildUnifiedGraph projects a filtered connection map into a node/link graph
// bounded by limits. Nodes are kept by descending total volume, then links
// touching evicted nodes are dropped and the rest kept by descending volume.
// Ties break on id so repeated passes over the same snapshot agree.
func BuildUnifiedGraph(data domain.ConnectionMap, trending map[string]bool, limits domain.SizeLimits) *domain.UnifiedGraph {
	if limits.MaxNodes <= 0 || limits.MaxLinks <= 0 {
		limits = domain.DesktopLimits()
	}

	var tokenNodes []*domain.UnifiedNode
	var links []*domain.UnifiedLink
	kolNodes := make(map[string]*domain.UnifiedNode)

	// Deterministic token order.
	mintsOrdered := make([]string, 0, len(data))
	for mint := range data {
		mintsOrdered = append(mintsOrdered, mint)
	}
	sort.Strings(mintsOrdered)

	for _, mint := range mintsOrdered {
		record := data[mint]
		if record == nil {
			continue
		}

		active := activeConnections(record)
		if len(active) == 0 {
			continue
		}

		tokenVolume := 0.0
		tokenTrades := 0
		for _, conn := range active {
			tokenVolume += conn.TotalVolume
			tokenTrades += conn.TradeCount
		}

		tokenNodes = append(tokenNodes, &domain.UnifiedNode{
			ID:          mint,
			Type:        domain.NodeTypeToken,
			Label:       mint,
			Value:       float64(tokenTrades * tokenValueMultiplier),
			Connections: len(active),
			TotalVolume: tokenVolume,
			TradeCount:  tokenTrades,
			IsTrending:  trending[mint],
		})

		for _, conn := range active {
			node, exists := kolNodes[conn.KOLWallet]
			if !exists {
				node = &domain.UnifiedNode{
					ID:             conn.KOLWallet,
					Type:           domain.NodeTypeKOL,
					Label:          conn.KOLWallet,
					Value:          float64(conn.TradeCount * kolValueMultiplier),
					Connections:    1,
					TotalVolume:    conn.TotalVolume,
					TradeCount:     conn.TradeCount,
					InfluenceScore: conn.InfluenceScore,
				}
				kolNodes[conn.KOLWallet] = node
			} else {
				node.Connections++
				node.TotalVolume += conn.TotalVolume
				node.TradeCount += conn.TradeCount
				if conn.InfluenceScore > node.InfluenceScore {
					node.InfluenceScore = conn.InfluenceScore
				}
			}
			// Ordered sequence: a token repeats once per record referencing the KOL.
			node.RelatedTokens = append(node.RelatedTokens, mint)

			trades := conn.TradeCount
			if trades < 1 {
				trades = 1
			}
			links = append(links, &domain.UnifiedLink{
				Source:           mint,
				Target:           conn.KOLWallet,
				Volume:           conn.TotalVolume,
				TradeCount:       conn.TradeCount,
				AverageTradeSize: conn.TotalVolume / float64(trades),
			})
		}
	}

	nodes := make([]*domain.UnifiedNode, 0, len(tokenNodes)+len(kolNodes))
	nodes = append(nodes, tokenNodes...)
	for _, node := range kolNodes {
		nodes = append(nodes, node)
	}

	totalTokens := len(tokenNodes)
	totalKOLs := len(kolNodes)

	// Truncate nodes by volume, tokens and KOLs together.
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].TotalVolume != nodes[j].TotalVolume {
			return nodes[i].TotalVolume > nodes[j].TotalVolume
		}
		return nodes[i].ID < nodes[j].ID
	})
	if len(nodes) > limits.MaxNodes {
		nodes = nodes[:limits.MaxNodes]
	}

	retained := make(map[string]bool, len(nodes))
	keptTokens, keptKOLs := 0, 0
	for _, node := range nodes {
		retained[node.ID] = true
		if node.Type == domain.NodeTypeToken {
			keptTokens++
		} else {
			keptKOLs++
		}
	}

	// Drop links with an evicted endpoint, then truncate by volume.
	keptLinks := links[:0]
	for _, link := range links {
		if retained[link.Source] && retained[link.Target] {
			keptLinks = append(keptLinks, link)
		}
	}
	sort.Slice(keptLinks, func(i, j int) bool {
		if keptLinks[i].Volume != keptLinks[j].Volume {
			return keptLinks[i].Volume > keptLinks[j].Volume
		}
		if keptLinks[i].Source != keptLinks[j].Source {
			return keptLinks[i].Source < keptLinks[j].Source
		}
		return keptLinks[i].Target < keptLinks[j].Target
	})
	if len(keptLinks) > limits.MaxLinks {
		keptLinks = keptLinks[:limits.MaxLinks]
	}

	return &domain.UnifiedGraph{
		Nodes: nodes,
		Links: keptLinks,
		Metadata: domain.NetworkMetadata{
			TokenCount:     keptTokens,
			KOLCount:       keptKOLs,
			FilteredTokens: totalTokens - keptTokens,
			FilteredKOLs:   totalKOLs - keptKOLs,
			ComputedAt:     time.Now().UnixMilli(),
		},
	}
}

// activeConnections returns connections with at least one trade and non-zero
// volume, in deterministic wallet order.
func activeConnections(record *domain.TokenConnectionRecord) []*domain.KOLConnection {
	wallets := make([]string, 0, len(record.KOLConnections))
	for wallet, conn := range record.KOLConnections {
		if conn != nil && conn.TradeCount > 0 && conn.TotalVolume > 0 {
			wallets = append(wallets, wallet)
		}
	}
	sort.Strings(wallets)

	active := make([]*domain.KOLConnection, 0, len(wallets))
	for _, wallet := range wallets {
		conn := record.KOLConnections[wallet]
		if conn.KOLWallet == "" {
			connCopy := *conn
			connCopy.KOLWallet = wallet
			conn = &connCopy
		}
		active = append(active, conn)
	}
	return active
}

package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/tsig-uy/mapgate/internal/core/domain"
)

// buildSchema creates the read-only GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	pointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RoutePoint",
		Fields: graphql.Fields{
			"id":  &graphql.Field{Type: graphql.String},
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	draftType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Draft",
		Fields: graphql.Fields{
			"state": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return string(p.Source.(domain.DraftRoute).State), nil
				},
			},
			"points": &graphql.Field{
				Type: graphql.NewList(pointType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(domain.DraftRoute).Points, nil
				},
			},
			"validated": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(domain.DraftRoute).Geometry != nil, nil
				},
			},
		},
	})

	candidateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Candidate",
		Fields: graphql.Fields{
			"type": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return string(p.Source.(domain.FeatureCandidate).Type), nil
				},
			},
			"id":           &graphql.Field{Type: graphql.String},
			"display_name": &graphql.Field{Type: graphql.String},
		},
	})

	sessionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Session",
		Fields: graphql.Fields{
			"id": &graphql.Field{Type: graphql.String},
			"draft": &graphql.Field{
				Type: draftType,
			},
			"candidates": &graphql.Field{
				Type: graphql.NewList(candidateType),
			},
		},
	})

	lineType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Line",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.Int},
			"description":  &graphql.Field{Type: graphql.String},
			"company":      &graphql.Field{Type: graphql.String},
			"observations": &graphql.Field{Type: graphql.String},
			"origin":       &graphql.Field{Type: graphql.String},
			"destination":  &graphql.Field{Type: graphql.String},
			"enabled":      &graphql.Field{Type: graphql.Boolean},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"session": &graphql.Field{
				Type:        sessionType,
				Description: "Inspect a live map session",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s, err := deps.Sessions.Get(p.Args["id"].(string))
					if err != nil {
						return nil, err
					}
					return map[string]interface{}{
						"id":         s.ID,
						"draft":      s.Draft.Snapshot(),
						"candidates": s.Candidates(),
					}, nil
				},
			},
			"linesByCompany": &graphql.Field{
				Type:        graphql.NewList(lineType),
				Description: "List the lines operated by one company",
				Args: graphql.FieldConfigArgument{
					"company": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Lines.SearchByCompany(p.Context, p.Args["company"].(string))
				},
			},
			"linesBySchedule": &graphql.Field{
				Type:        graphql.NewList(lineType),
				Description: "List the lines running inside a time-of-day window (HH:MM:SS)",
				Args: graphql.FieldConfigArgument{
					"from": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"to":   &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					window := domain.ScheduleWindow{
						From: p.Args["from"].(string),
						To:   p.Args["to"].(string),
					}
					return deps.Lines.SearchBySchedule(p.Context, window)
				},
			},
			"linesByStops": &graphql.Field{
				Type:        graphql.NewList(lineType),
				Description: "List the lines connecting two stops",
				Args: graphql.FieldConfigArgument{
					"origin":      &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					"destination": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Lines.SearchByOriginDestination(p.Context,
						p.Args["origin"].(int), p.Args["destination"].(int))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
}

type graphqlRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// GraphQLHandler serves POST /graphql.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		panic("graphql schema: " + err.Error())
	}

	return func(c *fiber.Ctx) error {
		var req graphqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid GraphQL request")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			OperationName:  req.OperationName,
			VariableValues: req.Variables,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}

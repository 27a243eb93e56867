package api

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rxtech-lab/vesting-mcp/internal/models"
	"github.com/rxtech-lab/vesting-mcp/internal/services"
)

func (s *APIServer) handleCreateToken(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	var req services.CreateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	token, err := s.svc.Tokens.CreateToken(c.UserContext(), organizationID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(token)
}

func (s *APIServer) handleListTokens(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	tokens, err := s.svc.Tokens.List(c.UserContext(), organizationID)
	if err != nil {
		return err
	}
	return c.JSON(tokens)
}

func (s *APIServer) handleGetToken(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	token, err := s.svc.Tokens.Get(c.UserContext(), organizationID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(token)
}

func (s *APIServer) handleSubmitTokenDeployment(c *fiber.Ctx) error {
	return s.submitHandler(func(c *fiber.Ctx, organizationID, id string, req services.SubmitRequest) (any, error) {
		return s.svc.Tokens.SubmitTokenDeployment(c.UserContext(), organizationID, id, req)
	})(c)
}

// handleListTransactions lists the organization's transactions, optionally filtered by ?status=.
func (s *APIServer) handleListTransactions(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	var status *models.TransactionStatus
	if raw := c.Query("status"); raw != "" {
		st := models.TransactionStatus(raw)
		switch st {
		case models.TransactionStatusPending, models.TransactionStatusSuccess, models.TransactionStatusFailed:
		default:
			return badRequest(c, "status must be one of PENDING, SUCCESS, FAILED")
		}
		status = &st
	}

	txs, err := s.svc.Transactions.ListByOrganization(c.UserContext(), organizationID, status)
	if err != nil {
		return err
	}
	return c.JSON(txs)
}

func (s *APIServer) handleGetTransaction(c *fiber.Ctx) error {
	organizationID, err := organization(c)
	if err != nil {
		return err
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "transaction id must be a number")
	}

	tx, err := s.svc.Transactions.Get(c.UserContext(), organizationID, uint(id))
	if err != nil {
		return err
	}
	return c.JSON(tx)
}

// handleApplyStatus is the callback of the chain layer, mounted behind the shared callback
// secret. A redelivered status is not an error.
func (s *APIServer) handleApplyStatus(c *fiber.Ctx) error {
	var update services.StatusUpdate
	if err := c.BodyParser(&update); err != nil {
		return badRequest(c, "Invalid request body")
	}

	tx, err := s.svc.Reconcile.ApplyStatus(c.UserContext(), update)
	if err != nil && !errors.Is(err, services.ErrAlreadyResolved) {
		return err
	}
	return c.JSON(fiber.Map{
		"transaction":      tx,
		"already_resolved": err != nil,
	})
}

func (s *APIServer) handleListChains(c *fiber.Ctx) error {
	chains, err := s.svc.Chains.ListChains(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(chains)
}

func (s *APIServer) handleCreateChain(c *fiber.Ctx) error {
	var chain models.Chain
	if err := c.BodyParser(&chain); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := s.svc.Chains.CreateChain(c.UserContext(), &chain); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(chain)
}

type UpdateChainRequest struct {
	RPC       string `json:"rpc" validate:"required,url"`
	NetworkID string `json:"network_id" validate:"required"`
}

func chainID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func (s *APIServer) handleGetChain(c *fiber.Ctx) error {
	id, err := chainID(c)
	if err != nil {
		return badRequest(c, "chain id must be a number")
	}

	chain, err := s.svc.Chains.GetChain(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(chain)
}

func (s *APIServer) handleGetActiveChain(c *fiber.Ctx) error {
	chain, err := s.svc.Chains.GetActiveChain(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(chain)
}

func (s *APIServer) handleUpdateChain(c *fiber.Ctx) error {
	id, err := chainID(c)
	if err != nil {
		return badRequest(c, "chain id must be a number")
	}

	var req UpdateChainRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := validator.New().Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	if err := s.svc.Chains.UpdateChainConfig(c.UserContext(), id, req.RPC, req.NetworkID); err != nil {
		return err
	}
	return s.handleGetChain(c)
}

// handleActivateChain makes the chain the default one, deactivating every other chain.
func (s *APIServer) handleActivateChain(c *fiber.Ctx) error {
	id, err := chainID(c)
	if err != nil {
		return badRequest(c, "chain id must be a number")
	}

	if err := s.svc.Chains.SetActiveChainByID(c.UserContext(), id); err != nil {
		return err
	}
	return s.handleGetChain(c)
}

package server

import (
	"fmt"
	"log"
	"net"

	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"

	"github.com/MikaelConecto/services-splitted-stacks/config"
	"github.com/MikaelConecto/services-splitted-stacks/internal/auth"
	"github.com/MikaelConecto/services-splitted-stacks/internal/opportunity"
	"github.com/MikaelConecto/services-splitted-stacks/internal/store"
	"github.com/MikaelConecto/services-splitted-stacks/internal/tokens"
	"github.com/MikaelConecto/services-splitted-stacks/misc"
	"github.com/MikaelConecto/services-splitted-stacks/platforms/billing"
	"github.com/MikaelConecto/services-splitted-stacks/platforms/crm"
	"github.com/MikaelConecto/services-splitted-stacks/platforms/maps"
	"github.com/MikaelConecto/services-splitted-stacks/platforms/shortlink"
	"github.com/MikaelConecto/services-splitted-stacks/platforms/twilio"
)

type Server struct {
	Cfg *config.Config
	r   *gin.Engine
	db  *bolt.DB

	store *store.Store
	codec *tokens.Codec
	auth  auth.Provider

	engine    *opportunity.Engine
	admission *opportunity.Admission
	query     *opportunity.Query
}

func New(cfg *config.Config, r *gin.Engine) (*Server, error) {
	codec, err := tokens.New(cfg.TokenSecret)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		Cfg:   cfg,
		r:     r,
		db:    misc.OpenDB(cfg.DBPath, cfg.DBName),
		codec: codec,
		auth:  auth.NewIdentityClient(cfg.Identity.Endpoint, cfg.Identity.Key),
	}
	srv.store = store.New(srv.db, cfg)

	if err := srv.initializeDBs(); err != nil {
		return nil, err
	}

	crmClient := crm.New(cfg.CRM.Endpoint, cfg.CRM.Token)
	billing.Init(cfg.Stripe.Key)

	srv.engine = &opportunity.Engine{
		Cfg:      cfg,
		Store:    srv.store,
		CRM:      crmClient,
		Codec:    codec,
		Identity: srv.auth,
		Alert:    srv.Alert,
	}
	if cfg.Twilio.SID != "" {
		srv.engine.SMS = twilio.New(cfg.Twilio.SID, cfg.Twilio.Token, cfg.Twilio.From)
	}
	if ec := cfg.MailClient(); ec != nil {
		srv.engine.Mail = &mandrillMailer{ec: ec}
	}
	if cfg.Shortlink.Key != "" {
		srv.engine.Shortener = shortlink.New(cfg.Shortlink.Endpoint, cfg.Shortlink.Key, cfg.Shortlink.Domain)
	}
	if cfg.Maps.Key != "" && cfg.ImagesDir != "" {
		srv.engine.Maps = maps.New(cfg.Maps.Endpoint, cfg.Maps.Key, cfg.ImagesDir)
	}

	srv.admission = opportunity.NewAdmission(cfg, srv.store, crmClient, billing.Client{}, codec)
	srv.admission.Alert = srv.Alert
	srv.query = &opportunity.Query{Store: srv.store, Codec: codec}

	srv.initializeRoutes(r)
	return srv, nil
}

func (srv *Server) initializeDBs() error {
	return srv.db.Update(func(tx *bolt.Tx) error {
		return misc.InitBuckets(tx, srv.Cfg.AllBuckets()...)
	})
}

func (srv *Server) initializeRoutes(r *gin.Engine) {
	r.POST("/hooks/opportunity", newOpportunityHook(srv))

	v1 := r.Group("/api/v1", auth.Middleware(srv.auth))
	v1.GET("/opportunity/accept/:opportunityId/:companyId/:answerType", acceptOpportunity(srv))
	v1.GET("/opportunity/reject/:opportunityId/:companyId/:answerType", rejectOpportunity(srv))
	v1.GET("/opportunity/owned/:trackingId", getOwnedOpportunity(srv))
	v1.GET("/opportunity/notification/:opportunityId/:companyId", getOpportunityForNotification(srv))

	admin := v1.Group("/admin", auth.AdminOnly())
	admin.GET("/opportunity/:id", getOpportunity(srv))
	admin.GET("/notifications/:opportunityId", getNotifications(srv))
}

// Alert logs an operational problem and, when an ops address is
// configured, mails it out. Used for the situations that need a human:
// charged-but-unsynced seats, lost CRM writes.
func (srv *Server) Alert(msg string, err error) {
	if err != nil {
		log.Println("ALERT:", msg, err)
	} else {
		log.Println("ALERT:", msg)
	}
	if srv.Cfg.OpsEmail == "" {
		return
	}
	if ec := srv.Cfg.MailClient(); ec != nil {
		body := msg
		if err != nil {
			body = fmt.Sprintf("%s\n\n%v", msg, err)
		}
		if _, mailErr := ec.SendMessage(body, "Conecto alert: "+srv.Cfg.ServiceName, srv.Cfg.OpsEmail, "Ops", []string{"alert"}); mailErr != nil {
			log.Println("failed to deliver alert mail:", mailErr)
		}
	}
}

func (srv *Server) Run() error {
	return srv.r.Run(net.JoinHostPort(srv.Cfg.Host, srv.Cfg.Port))
}

func (srv *Server) Close() error {
	return srv.db.Close()
}
